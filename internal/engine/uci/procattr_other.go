//go:build !linux

package uci

import "os/exec"

func setProcAttr(*exec.Cmd) {}
