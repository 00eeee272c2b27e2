// Package query parses and validates the read parameters of a request.
//
// Parameters and their grammars:
//
//	Parameter                     | Grammar
//	------------------------------|---------------------------------------------
//	?with=author!,tags            | relations to include, "!" also counts them
//	?where=[price>=10,author.name=Ann] | comparisons (=, >, <, >=, <=), one relation hop
//	?filter=price[10:20]          | declared range filters, bounds checked by rule
//	?orderBy=title:desc           | one orderable field, direction asc by default
//	?orderByRelation=author.name  | in-memory ordering by a related field
//	?limit=10                     | positive row limit
//	?paginate=25&page=2           | page size within the configured bounds
//
// A Builder validates each token against the entity's allow-lists and collects
// problems in a Report instead of failing the request: a partially valid request
// still runs with whatever was accepted.
package query
