package config

import (
	"reflect"
	"strconv"
)

// TagString carries driver-specific options in Go struct-tag syntax,
// e.g. `baud:"9600"`.
type TagString reflect.StructTag

func (d TagString) GetInt(key string, defaultValue int) (int, error) {
	value := reflect.StructTag(d).Get(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func (d TagString) GetFloat(key string, defaultValue float64) (float64, error) {
	value := reflect.StructTag(d).Get(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(value, 64)
}

func (d TagString) Get(key string) string {
	return reflect.StructTag(d).Get(key)
}
