// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

//go:build !windows

package config

import "github.com/google/renameio/v2"

var writeFile = renameio.WriteFile
