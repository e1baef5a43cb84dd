package config

import "fmt"

// Validate enforces every invariant §4.2 marks fatal-on-load.
func Validate(cfg *Config) error {
	if cfg.ConfigVersion != SupportedConfigVersion {
		return fmt.Errorf("config_version %d unsupported (want %d); no silent migration", cfg.ConfigVersion, SupportedConfigVersion)
	}

	seenSourceInGroup := make(map[string]string) // source name -> group that claimed it
	for groupName, g := range cfg.SourceGroups {
		for _, sourceName := range g.Sources {
			if _, ok := cfg.Sources[sourceName]; !ok {
				return fmt.Errorf("source_group %q references unknown source %q", groupName, sourceName)
			}
			if owner, ok := seenSourceInGroup[sourceName]; ok {
				return fmt.Errorf("source %q is claimed by both group %q and group %q; groups must partition sources", sourceName, owner, groupName)
			}
			seenSourceInGroup[sourceName] = groupName
		}
	}

	seenLinkPair := make(map[[2]string]bool)
	for i, link := range cfg.Links {
		if _, ok := cfg.SourceGroups[link.SourceGroup]; !ok {
			return fmt.Errorf("link[%d] references unknown source_group %q", i, link.SourceGroup)
		}
		if _, ok := cfg.Destinations[link.Destination]; !ok {
			return fmt.Errorf("link[%d] references unknown destination %q", i, link.Destination)
		}
		key := [2]string{link.SourceGroup, link.Destination}
		if seenLinkPair[key] {
			return fmt.Errorf("link[%d]: (source_group, destination) pair (%q, %q) is duplicated", i, link.SourceGroup, link.Destination)
		}
		seenLinkPair[key] = true

		seenActivator := make(map[string]bool)
		for _, a := range link.Activators {
			akey := a.Type + "|" + string(a.Properties)
			if seenActivator[akey] {
				return fmt.Errorf("link[%d]: duplicate activator within the same link", i)
			}
			seenActivator[akey] = true
		}
	}

	return nil
}
