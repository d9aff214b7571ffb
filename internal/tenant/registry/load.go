package registry

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"tollgate/internal/tenant/models"
)

// LoadFile reads the "tenants" list from a YAML file. Unknown keys are
// rejected so misspelled options fail loudly instead of being ignored.
func LoadFile(path string) ([]*models.Tenant, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load tenants file %s: %w", path, err)
	}
	return decode(k)
}

// LoadBytes reads the "tenants" list from YAML content.
func LoadBytes(content []byte) ([]*models.Tenant, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse tenants: %w", err)
	}
	return decode(k)
}

func decode(k *koanf.Koanf) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := k.UnmarshalWithConf("tenants", &tenants, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			ErrorUnused:      true,
			WeaklyTypedInput: true,
			Result:           &tenants,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode tenants: %w", err)
	}
	return tenants, nil
}
