package featureflag

type Flag string

const (
	FlagDisableTreeRotation Flag = "DISABLE_TREE_ROTATION"
	FlagDisableFlock        Flag = "DISABLE_FLOCK"
	FlagDisableAvoidance    Flag = "DISABLE_AVOIDANCE"
	FlagDisableSight        Flag = "DISABLE_SIGHT"
	FlagDisableSmokeTest    Flag = "DISABLE_SMOKE_TEST"
)
