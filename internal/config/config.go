// Package config loads cohort settings from defaults, a YAML file, a .env
// file and COHORT_* environment variables, in that order.
package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cohort/internal/catalog"
	"github.com/roach88/cohort/internal/dataset"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "COHORT_"

// Engines lists the supported query engines.
var Engines = []string{"sqlite", "duckdb"}

// Config holds every setting the tools need.
type Config struct {
	DataDir          string `yaml:"data_dir" json:"data_dir"`
	DemographicsFile string `yaml:"demographics_file" json:"demographics_file"`
	PrimaryID        string `yaml:"primary_id_column" json:"primary_id_column"`
	SessionID        string `yaml:"session_column" json:"session_column"`
	CompositeID      string `yaml:"composite_id_column" json:"composite_id_column"`
	AgeColumn        string `yaml:"age_column" json:"age_column"`
	SexColumn        string `yaml:"sex_column" json:"sex_column"`
	StudySiteColumn  string `yaml:"study_site_column" json:"study_site_column"`
	Engine           string `yaml:"engine" json:"engine"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:          "data",
		DemographicsFile: "demographics.csv",
		PrimaryID:        "ursi",
		SessionID:        "session_num",
		CompositeID:      "customID",
		AgeColumn:        "age",
		SexColumn:        "sex",
		Engine:           "sqlite",
	}
}

// Sources names the optional inputs to Load. Empty paths are skipped.
type Sources struct {
	File    string
	EnvFile string

	// Environ defaults to os.Environ.
	Environ []string

	// Overrides are applied last, keyed by YAML name. Command-line flags
	// arrive here.
	Overrides map[string]string
}

// Load builds a Config from defaults and the given sources, then validates
// it. A missing YAML file is an error; a missing .env file is not.
func Load(src Sources) (Config, error) {
	c := Default()

	if src.File != "" {
		data, err := os.ReadFile(src.File)
		if err != nil {
			return Config{}, dataset.NewConfigurationError("load config",
				fmt.Sprintf("cannot read config file %s", src.File), err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, dataset.NewConfigurationError("load config",
				fmt.Sprintf("invalid YAML in %s", src.File), err)
		}
	}

	if src.EnvFile != "" {
		values, err := godotenv.Read(src.EnvFile)
		switch {
		case err == nil:
			if err := c.apply(fromEnv(values)); err != nil {
				return Config{}, err
			}
		case !os.IsNotExist(err):
			return Config{}, dataset.NewConfigurationError("load config",
				fmt.Sprintf("cannot read env file %s", src.EnvFile), err)
		}
	}

	environ := src.Environ
	if environ == nil {
		environ = os.Environ()
	}
	env := map[string]string{}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	if err := c.apply(fromEnv(env)); err != nil {
		return Config{}, err
	}
	if err := c.apply(src.Overrides); err != nil {
		return Config{}, err
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// FromMap returns the defaults overridden by values, keyed by YAML name.
// Unknown keys are a ConfigurationError.
func FromMap(values map[string]string) (Config, error) {
	c := Default()
	if err := c.apply(values); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

// Set overrides one setting by its YAML name.
func (c *Config) Set(key, value string) error {
	field, ok := c.fields()[key]
	if !ok {
		return dataset.NewConfigurationError("set config",
			fmt.Sprintf("unknown setting %q (known: %s)", key, strings.Join(Keys(), ", ")), nil)
	}
	*field = value
	return nil
}

// Keys returns the YAML names of every setting, sorted.
func Keys() []string {
	var c Config
	keys := make([]string, 0, 9)
	for k := range c.fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) fields() map[string]*string {
	return map[string]*string{
		"data_dir":            &c.DataDir,
		"demographics_file":   &c.DemographicsFile,
		"primary_id_column":   &c.PrimaryID,
		"session_column":      &c.SessionID,
		"composite_id_column": &c.CompositeID,
		"age_column":          &c.AgeColumn,
		"sex_column":          &c.SexColumn,
		"study_site_column":   &c.StudySiteColumn,
		"engine":              &c.Engine,
	}
}

func (c *Config) apply(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// fromEnv picks COHORT_* variables and maps them to setting names.
// COHORT_DATA_DIR sets data_dir. Unrecognised COHORT_* names are ignored.
func fromEnv(env map[string]string) map[string]string {
	known := map[string]bool{}
	for _, k := range Keys() {
		known[k] = true
	}
	out := map[string]string{}
	for k, v := range env {
		if !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
		if known[key] {
			out[key] = v
		}
	}
	return out
}

// Validate checks c against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return dataset.NewConfigurationError("validate config", "invalid built-in schema", err)
	}

	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		errs := cueerrors.Errors(err)
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		de := dataset.NewConfigurationError("validate config", "configuration does not match schema", err)
		de.Details = map[string]string{"cue": strings.Join(msgs, "; ")}
		return de
	}
	return nil
}

// Catalog returns the settings a directory scan depends on.
func (c Config) Catalog() catalog.Settings {
	return catalog.Settings{
		DataDir:          c.DataDir,
		DemographicsFile: c.DemographicsFile,
		PrimaryID:        c.PrimaryID,
		SessionID:        c.SessionID,
		CompositeID:      c.CompositeID,
	}
}

// Hash returns a stable digest of c.
func (c Config) Hash() string {
	data, _ := json.Marshal(c)
	return hashWithDomain("cohort/config/v1", data)
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
