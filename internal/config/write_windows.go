// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package config

import "os"

// TODO: use renameio once it supports atomic writes on Windows.
var writeFile = os.WriteFile
