package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mistifyio/kelpie"
	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
	Dir string
}

func TestConfig(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) SetupTest() {
	s.Dir = s.T().TempDir()
}

func (s *ConfigSuite) writeConfig(content string) string {
	file := filepath.Join(s.Dir, "kelpied.yaml")
	s.Require().NoError(os.WriteFile(file, []byte(content), 0600))
	return file
}

func (s *ConfigSuite) TestDefaults() {
	conf, err := loadConfig([]string{})
	s.Require().NoError(err)
	s.EqualValues(18000, conf.Port)
	s.Equal("warn", conf.LogLevel)
	s.Empty(conf.KV)
	s.Equal(kelpie.DefaultComputeTimeout, conf.ComputeTimeout)
	s.Equal(5*time.Second, conf.ShutdownTimeout)
	s.Empty(conf.Computes)
}

func (s *ConfigSuite) TestFlagsAndEnv() {
	s.T().Setenv("KELPIE_LOG_LEVEL", "debug")
	s.T().Setenv("KELPIE_STATSD", "localhost:8125")

	conf, err := loadConfig([]string{"--port", "1234", "-k", "badger://", "--shutdown-timeout", "1s"})
	s.Require().NoError(err)
	s.EqualValues(1234, conf.Port)
	s.Equal("badger://", conf.KV)
	s.Equal(time.Second, conf.ShutdownTimeout)
	s.Equal("debug", conf.LogLevel)
	s.Equal("localhost:8125", conf.Statsd)
}

func (s *ConfigSuite) TestFile() {
	file := s.writeConfig(`
port: 18001
compute-timeout: 3s
computes:
  - compute_id: local
    address: 127.0.0.1
  - compute_id: remote
    address: 10.0.0.2:3080
    protocol: https
    user: admin
    password: secret
    timeout: 5s
`)

	conf, err := loadConfig([]string{"--config", file})
	s.Require().NoError(err)
	s.EqualValues(18001, conf.Port)
	s.Require().Len(conf.Computes, 2)
	s.Equal("local", conf.Computes[0].ID)
	s.Equal(3*time.Second, conf.Computes[0].Timeout, "computes without a timeout should get compute-timeout")
	s.Equal("https", conf.Computes[1].Protocol)
	s.Equal("secret", conf.Computes[1].Password)
	s.Equal(5*time.Second, conf.Computes[1].Timeout)

	conf, err = loadConfig([]string{"--config", file, "--port", "18002"})
	s.Require().NoError(err)
	s.EqualValues(18002, conf.Port, "flags should win over the file")
}

func (s *ConfigSuite) TestInvalid() {
	tests := []struct {
		description string
		args        []string
		file        string
	}{
		{"unknown flag", []string{"--nope"}, ""},
		{"bad log level", []string{"--log-level", "loud"}, ""},
		{"missing config file", []string{"--config", "/nonexistent/kelpied.yaml"}, ""},
		{"compute without address", nil, "computes:\n  - compute_id: local\n"},
		{"compute with bad protocol", nil, "computes:\n  - compute_id: local\n    address: 127.0.0.1\n    protocol: ftp\n"},
	}

	for _, test := range tests {
		args := test.args
		if test.file != "" {
			args = append(args, "--config", s.writeConfig(test.file))
		}
		_, err := loadConfig(args)
		s.Error(err, test.description)
	}
}
