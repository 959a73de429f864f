package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/srg/blebeacon/internal/radio"
	"github.com/srg/blebeacon/pkg/config"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs blebeacon commands in-process against the simulated
// radio. All cmd/blebeacon test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	originalNewCapability func(*config.Config, *logrus.Logger) (radio.Capability, func() error, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.originalNewCapability = NewCapability
}

func (s *CommandTestSuite) TearDownTest() {
	NewCapability = s.originalNewCapability
}

// ExecuteCommand runs a fresh root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// WriteConfig stores body as a YAML config file and returns its path.
func (s *CommandTestSuite) WriteConfig(body string) string {
	path := filepath.Join(s.T().TempDir(), "blebeacon.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(body), 0o600), "config file MUST be written")
	return path
}
