package step

// PlaybackDirs lays out the skp input and rendered-output directories under
// a root. The same layout is used locally, on the device and in storage,
// each with its own path joiner.
type PlaybackDirs struct {
	Root   string
	Subdir string // gm image subdirectory, per builder
	Join   func(elem ...string) string
}

// SkpDir holds the recorded pictures to render.
func (p PlaybackDirs) SkpDir() string { return p.Join(p.Root, "skps") }

// GmActualDir holds images rendered by this run.
func (p PlaybackDirs) GmActualDir() string { return p.Join(p.Root, "gm-actual", p.Subdir) }

// GmExpectedDir holds baseline images.
func (p PlaybackDirs) GmExpectedDir() string { return p.Join(p.Root, "gm-expected", p.Subdir) }
