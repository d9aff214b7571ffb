package models

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	dErrors "tollgate/pkg/domain-errors"
)

// ParseOptions decodes a loosely typed option map, such as one read from
// JSON, into validated Options. Unknown keys are rejected. Windows may be
// duration strings ("1m") or integer milliseconds.
func ParseOptions(raw map[string]any) (Options, error) {
	var opts Options
	for key := range raw {
		if !knownOptionKeys[key] {
			return opts, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("Invalid rate limit option %q", key))
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "koanf",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &opts,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			millisecondsToDurationHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(raw); err != nil {
		return opts, dErrors.Wrap(err, dErrors.CodeValidation, "rate limit options could not be decoded")
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

var knownOptionKeys = func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Options{})
	for i := range t.NumField() {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("koanf"), ",")
		if tag != "" {
			keys[tag] = true
		}
	}
	return keys
}()

func millisecondsToDurationHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	}
	return data, nil
}
