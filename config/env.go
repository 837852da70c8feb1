package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// loadFromEnv applies environment overrides to every field carrying an
// `env` tag, at any nesting depth. Unset variables leave the field alone,
// so file values and defaults survive.
func loadFromEnv(cfg *Config) error {
	return applyEnv(reflect.ValueOf(cfg).Elem())
}

func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Struct && f.CanAddr() {
			if err := applyEnv(f); err != nil {
				return err
			}
			continue
		}
		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}
		if err := assign(f, raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// assign parses raw into the kinds the config structs actually use.
func assign(f reflect.Value, raw string) error {
	if !f.CanSet() {
		return fmt.Errorf("field not settable")
	}
	switch {
	case f.Kind() == reflect.String:
		f.SetString(raw)
	case f.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse bool %q: %w", raw, err)
		}
		f.SetBool(b)
	case f.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", raw, err)
		}
		f.SetInt(int64(d))
	case f.Kind() >= reflect.Int && f.Kind() <= reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("parse int %q: %w", raw, err)
		}
		f.SetInt(n)
	case f.Kind() == reflect.Slice && f.Type().Elem().Kind() == reflect.String:
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(f.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p))
			}
		}
		f.Set(out)
	default:
		return fmt.Errorf("unsupported kind %s", f.Kind())
	}
	return nil
}
