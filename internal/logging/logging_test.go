/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LoggingTestSuite struct {
	suite.Suite
	saved int
}

func (s *LoggingTestSuite) SetupTest() {
	s.saved = Level()
}

func (s *LoggingTestSuite) TearDownTest() {
	SetLogLevel(s.saved)
}

func (s *LoggingTestSuite) TestLogColor() {
	SetLogLevel(LevelTrace)
	var out bytes.Buffer
	l := New("color", &out)

	l.Tracef("this is tracef %s", "hello world")
	l.Infof("this is infof %s", "hello world")
	l.Debugf("this is debugf %s", "hello world")
	l.Warnf("this is warnf %s", "hello world")
	l.Errorf("this is errorf %s", "hello world")

	for _, name := range levelName {
		s.Contains(out.String(), name)
	}
	s.Contains(out.String(), "logging_test.go")
	s.Contains(out.String(), "color")
}

func (s *LoggingTestSuite) TestLevelFilters() {
	SetLogLevel(LevelWarn)
	var out bytes.Buffer
	l := New("filter", &out)

	l.Debugf("hidden")
	l.Infof("hidden")
	s.Empty(out.String())

	l.Warnf("shown %d", 1)
	s.Contains(out.String(), "shown 1")
}

func (s *LoggingTestSuite) TestSetLogLevelRejectsOutOfRange() {
	SetLogLevel(LevelError)
	SetLogLevel(LevelNoPrint + 1)
	s.Equal(LevelError, Level())
	SetLogLevel(-1)
	s.Equal(LevelError, Level())
}

func (s *LoggingTestSuite) TestNoPrint() {
	SetLogLevel(LevelNoPrint)
	var out bytes.Buffer
	l := New("", &out)
	l.Errorf("nothing")
	s.Zero(out.Len())
}

func TestLoggingTestSuite(t *testing.T) {
	suite.Run(t, new(LoggingTestSuite))
}
