// Package store groups the URL store implementations. The Store contract
// lives in internal/citation; postgres/ is the production implementation
// and memory/ backs tests and local runs.
package store
