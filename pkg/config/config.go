package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/edgeflare/pgrepo/pkg/events"
	mw "github.com/edgeflare/pgrepo/pkg/httputil/middleware"
	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/repository"
	"github.com/edgeflare/pgrepo/pkg/validation"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	REST     RESTConfig     `mapstructure:"rest"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Events   events.Config  `mapstructure:"events"`
	Entities []EntityConfig `mapstructure:"entities" validate:"dive"`
}

type RESTConfig struct {
	PG              PGConfig        `mapstructure:"pg"`
	ListenAddr      string          `mapstructure:"listenAddr"`
	BaseURL         string          `mapstructure:"baseURL"`
	Paginate        PaginateConfig  `mapstructure:"paginate"`
	CORS            *mw.CORSOptions `mapstructure:"cors"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdownTimeout"`
}

type PGConfig struct {
	ConnString string `mapstructure:"connString"`
	// ConnectTimeout bounds the startup retries while the database is unreachable.
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

type PaginateConfig struct {
	Lower  int `mapstructure:"lower" validate:"gte=1"`
	Higher int `mapstructure:"higher" validate:"gtefield=Lower"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// EntityConfig declares one entity type. Omitting relations, orderBys or
// relationOrders deactivates the feature; an empty list activates it with
// nothing allowed.
type EntityConfig struct {
	Name           string                  `mapstructure:"name" validate:"required"`
	Table          string                  `mapstructure:"table"`
	Schema         string                  `mapstructure:"schema"`
	PrimaryKey     string                  `mapstructure:"primaryKey"`
	Fillable       []string                `mapstructure:"fillable"`
	Relations      []RelationConfig        `mapstructure:"relations" validate:"omitempty,dive"`
	OrderBys       []string                `mapstructure:"orderBys"`
	RelationOrders []string                `mapstructure:"relationOrders"`
	Filters        map[string]FilterConfig `mapstructure:"filters"`
	Rules          RulesConfig             `mapstructure:"rules"`
}

type RelationConfig struct {
	Name       string `mapstructure:"name" validate:"required"`
	Target     string `mapstructure:"target" validate:"required"`
	Kind       string `mapstructure:"kind" validate:"oneof=belongsTo hasMany belongsToMany"`
	ForeignKey string `mapstructure:"foreignKey"`
	RelatedKey string `mapstructure:"relatedKey"`
	Pivot      string `mapstructure:"pivot"`
}

// FilterConfig declares a range filter. Column defaults to the filter key.
type FilterConfig struct {
	Rule   string `mapstructure:"rule"`
	Column string `mapstructure:"column"`
}

// RulesConfig holds per-field validation rules for writes.
type RulesConfig struct {
	Store  map[string]string `mapstructure:"store"`
	Update map[string]string `mapstructure:"update"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rest.listenAddr", ":8080")
	v.SetDefault("rest.paginate.lower", repository.DefaultPaginateLower)
	v.SetDefault("rest.paginate.higher", repository.DefaultPaginateHigher)
	v.SetDefault("rest.shutdownTimeout", "10s")
	v.SetDefault("rest.pg.connectTimeout", "30s")
	v.SetDefault("metrics.addr", ":9100")
}

// Load reads config from file, environment (PGREPO_ prefix, dots become
// underscores) and flags, in increasing precedence. Flag names are config
// keys, e.g. --rest.listenAddr. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgrepo")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PGREPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validation.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Registry builds the entity registry and the write rules of every entity.
// Every filter and write rule must be a valid validation rule.
func (c *Config) Registry() (*model.Registry, map[string]repository.Rules, error) {
	types := make([]*model.Type, 0, len(c.Entities))
	rules := make(map[string]repository.Rules, len(c.Entities))
	for _, e := range c.Entities {
		if err := e.checkRules(); err != nil {
			return nil, nil, fmt.Errorf("entity %s: %w", e.Name, err)
		}
		types = append(types, e.Type())
		rules[e.Name] = repository.Rules{Store: e.Rules.Store, Update: e.Rules.Update}
	}
	reg, err := model.NewRegistry(types...)
	if err != nil {
		return nil, nil, err
	}
	return reg, rules, nil
}

func (e EntityConfig) checkRules() error {
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(e.Filters)) {
		if err := validation.ValidRule(e.Filters[key].Rule); err != nil {
			errs = append(errs, fmt.Errorf("filter %s: %w", key, err))
		}
	}
	for kind, set := range map[string]map[string]string{"store": e.Rules.Store, "update": e.Rules.Update} {
		for _, field := range slices.Sorted(maps.Keys(set)) {
			if err := validation.ValidRule(set[field]); err != nil {
				errs = append(errs, fmt.Errorf("rules.%s.%s: %w", kind, field, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Type converts the declaration into an unregistered model.Type.
func (e EntityConfig) Type() *model.Type {
	t := &model.Type{
		Name:           e.Name,
		Table:          e.Table,
		Schema:         e.Schema,
		PrimaryKey:     e.PrimaryKey,
		Fillable:       e.Fillable,
		OrderBys:       e.OrderBys,
		RelationOrders: e.RelationOrders,
	}
	if e.Relations != nil {
		t.Relations = make([]model.Relation, 0, len(e.Relations))
		for _, r := range e.Relations {
			t.Relations = append(t.Relations, model.Relation{
				Name:       r.Name,
				Target:     r.Target,
				Kind:       model.RelationKind(r.Kind),
				ForeignKey: r.ForeignKey,
				RelatedKey: r.RelatedKey,
				Pivot:      r.Pivot,
			})
		}
	}
	if len(e.Filters) > 0 {
		t.Filters = make(map[string]model.Filter, len(e.Filters))
		for key, f := range e.Filters {
			column := f.Column
			if column == "" {
				column = key
			}
			t.Filters[key] = model.Filter{Rule: f.Rule, Apply: model.Between(column)}
		}
	}
	return t
}
