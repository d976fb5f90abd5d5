/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"flag"
	"fmt"

	"github.com/PoetCoderJun/video-auto-cut/pkg/server"
)

func main() {
	workerOnly := flag.Bool("worker", false, "run only the task loop, no HTTP API")
	once := flag.Bool("once", false, "drain at most one task and exit")
	flag.Parse()

	s, err := server.NewServer(server.Options{
		WorkerOnly: *workerOnly || *once,
		Once:       *once,
	})
	if err != nil {
		fmt.Println("failed to new server, err: ", err.Error())
		return
	}
	s.Start()
}
