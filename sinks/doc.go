// Package sinks implements the terminal pipeline stages: AlertKafka
// (thresholding state machine publishing alert records to Kafka) and
// JsonOut (file or stdout).
package sinks
