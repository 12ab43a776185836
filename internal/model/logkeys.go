package model

// Structured log attribute keys shared across packages.
const (
	ModelKey    = "model.name"
	PhaseKey    = "ml.phase"
	DeviceKey   = "device.id"
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ChannelsKey = "data.channels"
	SequenceKey = "data.sequence"
	ClassesKey  = "data.classes"
	AccuracyKey = "metrics.accuracy"
	F1Key       = "metrics.f1"
	StdKey      = "metrics.std"
	FoldsKey    = "cv.folds"
	SeedKey     = "config.random_seed"
	DecisionKey = "preds.class"
	ScoresKey   = "preds.scores"
	RunIDKey    = "run.id"
	ErrorKey    = "error"
)
