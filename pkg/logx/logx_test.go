package logx_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mistifyio/kelpie/pkg/logx"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

type LogxSuite struct {
	suite.Suite
	buf       *bytes.Buffer
	prevLevel log.Level
}

func TestLogx(t *testing.T) {
	suite.Run(t, new(LogxSuite))
}

func (s *LogxSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	s.prevLevel = log.GetLevel()
	log.SetOutput(s.buf)
}

func (s *LogxSuite) TearDownTest() {
	log.SetLevel(s.prevLevel)
	log.SetFormatter(&log.TextFormatter{})
}

func (s *LogxSuite) TestDefaultSetup() {
	s.Error(logx.DefaultSetup("loud"), "unknown level should fail")
	s.NoError(logx.DefaultSetup("debug"))
	s.Equal(log.DebugLevel, log.GetLevel())

	log.Info("hello")
	var line map[string]interface{}
	s.NoError(json.Unmarshal(s.buf.Bytes(), &line), "should log JSON")
	s.Equal("hello", line["msg"])
}

func (s *LogxSuite) TestLogReturnedErr() {
	s.NoError(logx.DefaultSetup("info"))

	logx.LogReturnedErr(func() error { return nil }, nil, "should not log")
	s.Zero(s.buf.Len(), "nil error should not log")

	logx.LogReturnedErr(func() error { return errors.New("boom") }, log.Fields{"id": "x"}, "failed")
	var line map[string]interface{}
	s.NoError(json.Unmarshal(s.buf.Bytes(), &line))
	s.Equal("failed", line["msg"])
	s.Equal("boom", line["error"])
	s.Equal("x", line["id"])
}
