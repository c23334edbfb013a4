package config

import (
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/skillhost/skillhost/pkg/recognizer"
)

// ServiceConfig holds configuration for the skill host service.
type ServiceConfig struct {
	config.ConfigurationDefault

	// Role selects which bot this instance serves: "router" hosts the
	// skill-routing assistant, "skill" hosts the flight-booking skill bot
	// directly so another router can reach it over HTTP.
	Role string `envDefault:"router" env:"BOT_ROLE"`

	// Skill routing
	SkillsFile string `envDefault:"./config/skills.yaml" env:"SKILLS_FILE"`
	CardsDir   string `envDefault:"./cards"              env:"CARDS_DIR"`

	// Conversation state
	StateBackend    string `envDefault:"memory" env:"STATE_BACKEND"`
	StateRedisURL   string `envDefault:""       env:"STATE_REDIS_URL"`
	StateTTLMinutes int    `envDefault:"1440"   env:"STATE_TTL_MINUTES"`

	// Language understanding (CLU)
	ClassifierEndpoint   string `envDefault:""              env:"CLASSIFIER_ENDPOINT"`
	ClassifierAPIKey     string `envDefault:""              env:"CLASSIFIER_API_KEY"`
	ClassifierProject    string `envDefault:"FlightBooking" env:"CLASSIFIER_PROJECT_NAME"`
	ClassifierDeployment string `envDefault:"production"    env:"CLASSIFIER_DEPLOYMENT_NAME"`
	ClassifierVerbose    bool   `envDefault:"true"          env:"CLASSIFIER_VERBOSE"`

	// Skill connector
	SkillTimeoutSec       int  `envDefault:"30"    env:"SKILL_TIMEOUT_SEC"`
	AllowPrivateEndpoints bool `envDefault:"false" env:"ALLOW_PRIVATE_SKILL_ENDPOINTS"`
}

// SkillTimeout returns the per-request skill delivery timeout.
func (c *ServiceConfig) SkillTimeout() time.Duration {
	return time.Duration(c.SkillTimeoutSec) * time.Second
}

// StateTTL returns the conversation state TTL as a duration.
func (c *ServiceConfig) StateTTL() time.Duration {
	return time.Duration(c.StateTTLMinutes) * time.Minute
}

// RecognizerConfig builds a recognizer.Config from the classifier settings.
func (c *ServiceConfig) RecognizerConfig() recognizer.Config {
	return recognizer.Config{
		Endpoint:       c.ClassifierEndpoint,
		APIKey:         c.ClassifierAPIKey,
		ProjectName:    c.ClassifierProject,
		DeploymentName: c.ClassifierDeployment,
		Verbose:        c.ClassifierVerbose,
	}
}
