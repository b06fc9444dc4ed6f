package logging

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Config is the "log" section of the console config.
type Config struct {
	Level    string                `json:"level"`
	File     string                `json:"file"`
	Patterns []LoggerPatternConfig `json:"patterns"`
}

// LoggerPatternConfig sets the level of every sublogger whose full name matches Pattern, e.g.
// {"pattern": "console.transport.*", "level": "debug"}.
type LoggerPatternConfig struct {
	Pattern string `json:"pattern"`
	Level   string `json:"level"`
}

const (
	// e.g. "foo" or "foo_bar-2".
	validLoggerSectionName = `[a-zA-Z0-9]+([_-]*[a-zA-Z0-9]+)*`
	// e.g. "foo" or "*".
	validLoggerSectionNameWithWildcard = `(` + validLoggerSectionName + `|\*)`
	// e.g. "foo.*.bar", anchored.
	validLoggerName = `^` + validLoggerSectionNameWithWildcard + `(\.` + validLoggerSectionNameWithWildcard + `)*$`
)

var loggerPatternRegexp = regexp.MustCompile(validLoggerName)

func validatePattern(pattern string) bool {
	return loggerPatternRegexp.MatchString(pattern)
}

func buildRegexFromPattern(pattern string) string {
	var matcher strings.Builder
	matcher.WriteRune('^')
	for _, ch := range pattern {
		switch ch {
		case '*':
			matcher.WriteString(`.*`)
		case '.':
			matcher.WriteString(`\.`)
		default:
			matcher.WriteRune(ch)
		}
	}
	matcher.WriteRune('$')
	return matcher.String()
}

type compiledPattern struct {
	matcher *regexp.Regexp
	level   Level
}

// patternSet is immutable once built and shared by a logger and all of its subloggers. Later
// patterns win over earlier ones.
type patternSet struct {
	patterns []compiledPattern
}

func compilePatterns(cfgs []LoggerPatternConfig) (*patternSet, error) {
	set := &patternSet{}
	for _, cfg := range cfgs {
		if !validatePattern(cfg.Pattern) {
			return nil, errors.Errorf("invalid logger pattern %q", cfg.Pattern)
		}
		level, err := LevelFromString(cfg.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "logger pattern %q", cfg.Pattern)
		}
		set.patterns = append(set.patterns, compiledPattern{
			matcher: regexp.MustCompile(buildRegexFromPattern(cfg.Pattern)),
			level:   level,
		})
	}
	return set, nil
}

func (set *patternSet) levelFor(name string) (Level, bool) {
	if set == nil {
		return INFO, false
	}
	level, found := INFO, false
	for _, pattern := range set.patterns {
		if pattern.matcher.MatchString(name) {
			level, found = pattern.level, true
		}
	}
	return level, found
}

// Validate checks the level and every pattern without building a logger.
func (cfg Config) Validate(path string) error {
	if cfg.Level != "" {
		if _, err := LevelFromString(cfg.Level); err != nil {
			return errors.Wrapf(err, "%s.level", path)
		}
	}
	if _, err := compilePatterns(cfg.Patterns); err != nil {
		return errors.Wrapf(err, "%s.patterns", path)
	}
	return nil
}
