package ops

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	GetLastResponseBody() []byte
}

// RegisterSteps registers health, metrics and status step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &opsSteps{tc: tc}

	ctx.Step(`^I note the request counter$`, steps.noteCounter)
	ctx.Step(`^the request counter should have grown by at least (\d+)$`, steps.counterGrew)
}

type opsSteps struct {
	tc     TestContext
	before float64
}

const requestCounter = "sovren_requests_total"

func (s *opsSteps) readCounter() (float64, error) {
	if err := s.tc.GET("/metrics", nil); err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(s.tc.GetLastResponseBody()))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, requestCounter+" ") {
			continue
		}
		return strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, requestCounter)), 64)
	}
	return 0, fmt.Errorf("%s not exported", requestCounter)
}

func (s *opsSteps) noteCounter(ctx context.Context) error {
	v, err := s.readCounter()
	if err != nil {
		return err
	}
	s.before = v
	return nil
}

func (s *opsSteps) counterGrew(ctx context.Context, n int) error {
	v, err := s.readCounter()
	if err != nil {
		return err
	}
	if v-s.before < float64(n) {
		return fmt.Errorf("expected %s to grow by %d, went from %v to %v", requestCounter, n, s.before, v)
	}
	return nil
}
