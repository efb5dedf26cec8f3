//go:build !windows

package main

func ensureSingleInstance() {}
