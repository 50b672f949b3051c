/*
* The MIT License (MIT)
*
* Copyright (c) 2016,2017,2020,2026  aerth <aerth@riseup.net>
*
* Permission is hereby granted, free of charge, to any person obtaining a copy
* of this software and associated documentation files (the "Software"), to deal
* in the Software without restriction, including without limitation the rights
* to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
* copies of the Software, and to permit persons to whom the Software is
* furnished to do so, subject to the following conditions:
*
* The above copyright notice and this permission notice shall be included in all
* copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
* IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
* FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
* AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
* LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
* OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
* SOFTWARE.
 */

// toreroserve serves files out of a directory with a fixed pool of workers
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/aerth/torero"
)

var (
	configpath = flag.String("conf", "", "path to JSON config")
	socketpath = flag.String("s", "", "path to admin UNIX socket (none if empty)")
	workers    = flag.Int("workers", 0, "number of worker goroutines (default 5)")
	queuesize  = flag.Int("queue", 0, "accepted connections waiting for a worker (default 10)")
	debug      = flag.Bool("v", false, "verbose logs")
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: toreroserve [flags] <port> <document root>")
	fmt.Fprintln(os.Stderr, "example: toreroserve 8080 WWW")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: bad port %q\n", flag.Arg(0))
		os.Exit(2)
	}

	config := torero.DefaultConfig()
	if *configpath != "" {
		config, err = torero.ReadConfig(*configpath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(111)
		}
	}
	config.Port = port
	config.Root = flag.Arg(1)
	if *socketpath != "" {
		config.Socket = *socketpath
	}
	if *workers != 0 {
		config.Workers = *workers
	}
	if *queuesize != 0 {
		config.QueueSize = *queuesize
	}
	if *debug {
		config.Debug = true
	}

	srv, err := torero.New(config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(111)
	}
	if err := srv.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	// Run until runlevel 0
	if err := srv.Wait(); err != nil {
		srv.Log().Println(err)
		os.Exit(1)
	}
}
