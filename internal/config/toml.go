package config

import (
	"bufio"
	"errors"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// tomlSettings mirrors cmd/geth's own tomlSettings: field names are matched
// as written, with no case-folding surprises for the operator editing the
// file by hand.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// LoadTOMLOverlay decodes file into cfg, overwriting whichever fields the
// file sets. Used for the optional --config flag layered on top of the
// environment-derived defaults, following go-ethereum's own cmd/geth
// loadConfig convention.
func LoadTOMLOverlay(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		return errors.New(file + ", " + err.Error())
	}
	return err
}
