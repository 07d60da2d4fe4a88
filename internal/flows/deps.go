package flows

// Deps groups flow dependency sets. The root engine builds this once and
// delegates to the matching flow implementation.
type Deps struct {
	Login   LoginDeps
	Refresh RefreshDeps
	Batch   BatchDeps
}
