//go:build oxy_release

package common

const idStringDebug = false

func registerIdString(IdString, string) {}

func lookupIdString(IdString) (string, bool) { return "", false }
