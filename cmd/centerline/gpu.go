//go:build !nogpu

package main

import _ "github.com/gogpu/centerline/gpu" // register the GPU accelerator
