package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/renameio/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. STASHFIN_STASH_URL.
const EnvPrefix = "STASHFIN"

const maskedSecret = "********"

var (
	// ErrReadOnly is returned when an update touches an environment-sourced key.
	ErrReadOnly = errors.New("key is set by environment and read-only")

	validate = validator.New()

	// secretKeys are masked in config views.
	secretKeys = []string{"jellyfin.password", "stash.apikey", "admin.password"}

	// restartKeys only take effect after a restart.
	restartKeys = []string{"listen.address", "listen.port", "listen.tlscert",
		"listen.tlskey", "listen.trustedproxies", "datadir", "logfile", "stash.url", "stash.apikey",
		"stash.timeout", "stash.maxretries"}
)

// Store holds the live configuration and notifies subscribers of changes.
type Store struct {
	mu          sync.RWMutex
	filename    string
	current     Config
	envKeys     map[string]bool
	subscribers []func(Config)
}

// Load reads the config file (if present), applies environment overrides and
// bound flags, and validates the result.
func Load(filename string, flags *pflag.FlagSet) (*Store, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, flag := range map[string]string{
			"listen.port": "port",
			"loglevel":    "loglevel",
			"logfile":     "logfile",
		} {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", filename, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(c); err != nil {
		return nil, err
	}

	s := &Store{
		filename: filename,
		current:  c,
		envKeys:  make(map[string]bool),
	}
	for _, key := range v.AllKeys() {
		if _, ok := os.LookupEnv(EnvName(key)); ok {
			s.envKeys[key] = true
		}
	}
	return s, nil
}

// NewStore returns a store around an already built config, used by tests.
func NewStore(c Config, filename string) *Store {
	return &Store{filename: filename, current: c, envKeys: make(map[string]bool)}
}

// Validate checks a configuration for consistency.
func Validate(c Config) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers fn to be called with the new config after every update.
func (s *Store) Subscribe(fn func(Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// IsEnvKey reports whether key is sourced from the environment.
func (s *Store) IsEnvKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.envKeys[key]
}

// UpdateResult describes the outcome of an update.
type UpdateResult struct {
	// Changed lists every key whose value changed.
	Changed []string `json:"changed"`
	// RestartRequired lists changed keys that only apply after a restart.
	RestartRequired []string `json:"restartRequired"`
}

// Update validates next, persists it and applies it. Masked secrets keep
// their current value.
func (s *Store) Update(next Config) (UpdateResult, error) {
	s.mu.Lock()

	prev := s.current
	unmaskSecrets(&next, prev)

	var result UpdateResult
	prevFlat, nextFlat := Flatten(prev), Flatten(next)
	for key, value := range nextFlat {
		if reflect.DeepEqual(prevFlat[key], value) {
			continue
		}
		if s.envKeys[key] {
			s.mu.Unlock()
			return UpdateResult{}, fmt.Errorf("%s: %w", key, ErrReadOnly)
		}
		result.Changed = append(result.Changed, key)
		if isRestartKey(key) {
			result.RestartRequired = append(result.RestartRequired, key)
		}
	}
	if err := Validate(next); err != nil {
		s.mu.Unlock()
		return UpdateResult{}, err
	}
	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		return UpdateResult{}, err
	}
	s.current = next
	subscribers := append([]func(Config){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(next)
	}
	return result, nil
}

// persist writes the config atomically as yaml.
func (s *Store) persist(c Config) error {
	if s.filename == "" {
		return nil
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	pendingFile, err := renameio.NewPendingFile(s.filename, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer pendingFile.Cleanup()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return pendingFile.CloseAtomicallyReplace()
}

// View is the admin representation of one config key.
type View struct {
	Value           any  `json:"value"`
	ReadOnly        bool `json:"readOnly"`
	RestartRequired bool `json:"restartRequired"`
	Secret          bool `json:"secret"`
}

// Views returns all config keys with secrets masked.
func (s *Store) Views() map[string]View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make(map[string]View)
	for key, value := range Flatten(s.current) {
		v := View{
			Value:           value,
			ReadOnly:        s.envKeys[key],
			RestartRequired: isRestartKey(key),
		}
		for _, secret := range secretKeys {
			if key == secret {
				v.Secret = true
				if str, _ := value.(string); str != "" {
					v.Value = maskedSecret
				}
			}
		}
		views[key] = v
	}
	return views
}

// Masked returns a copy of c with secrets replaced by a mask.
func Masked(c Config) Config {
	if c.Jellyfin.Password != "" {
		c.Jellyfin.Password = maskedSecret
	}
	if c.Stash.ApiKey != "" {
		c.Stash.ApiKey = maskedSecret
	}
	if c.Admin.Password != "" {
		c.Admin.Password = maskedSecret
	}
	return c
}

func unmaskSecrets(next *Config, prev Config) {
	if next.Jellyfin.Password == maskedSecret {
		next.Jellyfin.Password = prev.Jellyfin.Password
	}
	if next.Stash.ApiKey == maskedSecret {
		next.Stash.ApiKey = prev.Stash.ApiKey
	}
	if next.Admin.Password == maskedSecret {
		next.Admin.Password = prev.Admin.Password
	}
}

func isRestartKey(key string) bool {
	for _, k := range restartKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Flatten returns the config as dotted keys, using the mapstructure tag names.
func Flatten(c Config) map[string]any {
	out := make(map[string]any)
	flatten("", reflect.ValueOf(c), out)
	return out
}

func flatten(prefix string, v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("mapstructure")
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			flatten(key, fv, out)
			continue
		}
		out[key] = fv.Interface()
	}
}

// setDefaults registers every key of c as a viper default, which also makes
// AutomaticEnv pick up overrides for keys absent from the config file.
func setDefaults(v *viper.Viper, c Config) {
	for key, value := range Flatten(c) {
		v.SetDefault(key, value)
	}
}

// Merge applies changes, keyed by dotted config key, on top of base.
// Values are decoded like file values, so durations may be given as "15m".
func Merge(base Config, changes map[string]any) (Config, error) {
	known := Flatten(base)
	v := viper.New()
	setDefaults(v, base)
	for key, value := range changes {
		if _, ok := known[strings.ToLower(key)]; !ok {
			return Config{}, fmt.Errorf("unknown config key %q", key)
		}
		v.Set(key, value)
	}
	var decoded Config
	if err := v.Unmarshal(&decoded); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	// Only take the changed keys, the rest keeps its exact value.
	merged := base
	for key := range changes {
		copyKey(reflect.ValueOf(&merged).Elem(), reflect.ValueOf(decoded), strings.Split(strings.ToLower(key), "."))
	}
	return merged, nil
}

func copyKey(dst, src reflect.Value, path []string) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("mapstructure")
		if name == "" {
			name = strings.ToLower(t.Field(i).Name)
		}
		if name != path[0] {
			continue
		}
		if len(path) == 1 {
			dst.Field(i).Set(src.Field(i))
		} else {
			copyKey(dst.Field(i), src.Field(i), path[1:])
		}
		return
	}
}
