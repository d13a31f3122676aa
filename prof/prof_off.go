//go:build !profile
// +build !profile

package prof

const ProfileEnabled = false

type noopProfile struct{}

func (noopProfile) Stop() {}

func StartProfile(path string) interface {
	Stop()
} {
	return noopProfile{}
}
