package config

import (
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		warnMalformed(k, v, def, err)
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		warnMalformed(k, v, def, err)
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnMalformed(k, v, def, err)
		return def
	}
	return d
}

// valor inválido não derruba o boot, mas não pode passar calado
func warnMalformed(k, v string, def any, err error) {
	log.WithError(err).WithFields(log.Fields{
		"key":     k,
		"value":   v,
		"default": def,
	}).Warn("config: malformed env value, using default")
}
