package config

// SourceSpec defines the upstream image a build derives from.
type SourceSpec struct {
	// Name is the source repository. Defaults to the build name.
	Name string `yaml:"name"`

	// Tags are the candidate source tags. Order is preserved: variants are
	// enumerated in this order. An empty list is legal and yields no variants.
	Tags []string `yaml:"tags"`

	// Primary is the distinguished source tag that only_primary templates
	// attach to. Optional; when set it must be one of Tags.
	Primary string `yaml:"primary"`
}

// IsPrimary reports whether tag is the primary source tag.
func (s *SourceSpec) IsPrimary(tag string) bool {
	return s.Primary != "" && s.Primary == tag
}

// Ref returns the source image reference "<name>:<tag>".
func (s *SourceSpec) Ref(tag string) string {
	return s.Name + ":" + tag
}
