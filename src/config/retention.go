package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RetentionPolicy defines how many history records to keep using
// time-bucketed rules. Policies are additive: a record survives if ANY rule
// wants to keep it. This mirrors restic's forget policy.
type RetentionPolicy struct {
	KeepLast    int `yaml:"keep_last" toml:"keep_last"`
	KeepDaily   int `yaml:"keep_daily" toml:"keep_daily"`
	KeepWeekly  int `yaml:"keep_weekly" toml:"keep_weekly"`
	KeepMonthly int `yaml:"keep_monthly" toml:"keep_monthly"`
	KeepYearly  int `yaml:"keep_yearly" toml:"keep_yearly"`
}

// Active returns true if any retention rule is configured.
func (r RetentionPolicy) Active() bool {
	return r.KeepLast > 0 || r.KeepDaily > 0 || r.KeepWeekly > 0 || r.KeepMonthly > 0 || r.KeepYearly > 0
}

// UnmarshalYAML accepts both forms:
//
//	retention: 10          → RetentionPolicy{KeepLast: 10}
//	retention:
//	  keep_last: 3
//	  keep_daily: 7        → RetentionPolicy{KeepLast: 3, KeepDaily: 7}
func (r *RetentionPolicy) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var n int
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("retention: expected integer or policy map, got %q", value.Value)
		}
		*r = RetentionPolicy{KeepLast: n}
		return nil
	case yaml.MappingNode:
		type policyAlias RetentionPolicy
		var alias policyAlias
		if err := value.Decode(&alias); err != nil {
			return fmt.Errorf("retention: %w", err)
		}
		*r = RetentionPolicy(alias)
		return nil
	}
	return fmt.Errorf("retention: expected integer or map, got YAML kind %d", value.Kind)
}
