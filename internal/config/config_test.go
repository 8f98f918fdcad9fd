package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetDurationEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("CHECKOUT_TIMEOUT", "abc")
	assert.Equal(t, 10*time.Second, getDurationEnv("CHECKOUT_TIMEOUT", 10, time.Second))

	t.Setenv("CHECKOUT_TIMEOUT", "3")
	assert.Equal(t, 3*time.Second, getDurationEnv("CHECKOUT_TIMEOUT", 10, time.Second))
}

func TestGetDecimalEnvRejectsNegative(t *testing.T) {
	t.Setenv("TAX_RATE", "-0.1")
	assert.Equal(t, "0.05", getDecimalEnv("TAX_RATE", "0.05").String())

	t.Setenv("TAX_RATE", "0.18")
	assert.Equal(t, "0.18", getDecimalEnv("TAX_RATE", "0.05").String())
}

func TestGetListEnvSkipsBlanks(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	assert.Equal(t, []string{"a:9092", "b:9092"}, getListEnv("KAFKA_BROKERS"))

	t.Setenv("KAFKA_BROKERS", "")
	assert.Nil(t, getListEnv("KAFKA_BROKERS"))
}
