package e2e

import (
	"github.com/cucumber/godog"

	"sovren/e2e/steps/common"
	"sovren/e2e/steps/ops"
	"sovren/e2e/steps/telephony"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (requests, status and body assertions)
	common.RegisterSteps(ctx, tc)

	// Register resolve and admin mapping steps
	telephony.RegisterSteps(ctx, tc)

	// Register health, metrics and status steps
	ops.RegisterSteps(ctx, tc)
}
