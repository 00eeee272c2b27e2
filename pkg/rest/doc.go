// Package rest exposes registered entity repositories over HTTP.
//
// Each entity type is mounted at /entity_name:
//
//	Route                   | Action
//	------------------------|---------
//	GET    /{entity}        | Index
//	POST   /{entity}        | Store
//	GET    /{entity}/{id}   | Show
//	PATCH  /{entity}/{id}   | Update
//	PUT    /{entity}/{id}   | Update
//	DELETE /{entity}/{id}   | Destroy
//
// Query parameters shape reads. Problems with them are reported in the
// response errors and the offending parameter is skipped:
//
//	Parameter                       | Description
//	--------------------------------|------------------------------------------------
//	?with=author,tags!              | Eager load relations, "!" also counts them
//	?where=[price>=1000,author.name=Ann] | Comparisons on fields or relation fields
//	?filter=price[1000:2000]        | Range filters declared for the entity
//	?orderBy=price:desc             | Order by a field or relation.field
//	?orderByRelation=author.name    | Order the fetched result by a belongsTo field
//	?limit=10                       | Maximum number of results
//	?paginate=20&page=2             | Paginated result, overrides limit
//
// Write bodies are JSON objects. The "relations" key maps relation names to
// the primary key of the entity to link; every other key is an attribute.
//
//	{"title": "Dune", "price": 1200, "relations": {"author": 1}}
//
// Every response has the shape {"result": ..., "errors": [...]}.
//
// Example usage:
//
//	server := rest.NewServer(repos, rest.WithLogger(logger))
//	log.Fatal(server.ListenAndServe(":8080"))
package rest
