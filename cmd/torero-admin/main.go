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

// torero-admin command for controlling a torero daemon
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aerth/clix"
	"github.com/aerth/torero"
)

var (
	sock        = flag.String("s", "", "path to socket")
	refreshtime = flag.Duration("r", time.Minute*30, "refresh status duration")
	clientname  = "ADMIN" // use linker flag to change at compilation time
	socketpath  string    // use linker flag or CLI flag
)

const (
	cmdStatus = "status"
	cmdQuit   = "quit"
)

func init() {
	log.SetFlags(log.Lshortfile)
}

func main() {
	flag.Parse()
	if *sock == "" && socketpath == "" {
		flag.Usage()
		println("Need socket flag (torero-admin -s /path/to/socket)")
		os.Exit(2)
	}
	if *sock != "" {
		socketpath = *sock
	}
	client := buildClient()
	if len(flag.Args()) > 0 { // custom CLI command, no menu
		reply, err := client.Send(flag.Args()[0], flag.Args()[1:]...)
		if reply != "" {
			fmt.Println(reply)
		}
		if err != nil {
			println(err.Error())
			os.Exit(1)
		}
		return
	}

	// CLI menu
	doCUI(client)
}

func notrunning() {
	println("Server might not be running. Fix that first.")
	os.Exit(2)
}

func buildClient() *torero.Client {
	client, err := torero.NewClient(socketpath)
	if err != nil {
		println(err.Error())
		os.Exit(2)
	}
	client.Name = clientname
	if _, err := client.Hello(); err != nil {
		println(err.Error())
		notrunning()
	}
	return client
}

func buildWindow() *clix.MenuBar {
	mm := clix.NewMenuBar(nil)
	mm.SetMessage("TORERO ADMIN")
	return mm
}

func buildMenu(mm *clix.MenuBar) {
	mm.NewItem("Check Server Status")
	mm.NewItem("Single User Mode")
	mm.NewItem("Multi User Mode")
	mm.NewItem("Halt Server")
	entry := clix.NewEntry(mm.GetScreen())
	mm.AddEntry("Command", entry) // manual command
	mm.NewItem("Quit Admin")
}

func handleKeyMouse(mm *clix.MenuBar) *clix.EventHandler {
	ev := clix.NewEventHandler()
	ev.AddMenuBar(mm)
	ev.Launch()
	mm.GetScreen().Show()
	return ev
}

func handleMenuInput(mm *clix.MenuBar, ev *clix.EventHandler) (cmd string) {
	select {
	case <-time.After(*refreshtime):
		cmd = cmdStatus
	case c := <-ev.Output:
		mm.GetScreen().Show()
		switch c.(string) {
		case "Quit Admin":
			cmd = cmdQuit
		case "Check Server Status":
			cmd = cmdStatus
		case "Single User Mode":
			cmd = "runlevel 1"
		case "Multi User Mode":
			cmd = "runlevel 3"
		case "Halt Server":
			cmd = "halt"
		default: // custom command
			cmd = c.(string)
		}
	}
	return cmd
}

func doCUI(client *torero.Client) {
	mm := buildWindow()
	scrol := clix.NewScrollFrame("torero")
	msg := "Connected to: " + client.ServerName
	for {
		scrol.Buffer.Reset()
		scrol.Buffer.WriteString(msg)
		scrol.Buffer.WriteString("\n")
		mm.AttachScroller(scrol)
		buildMenu(mm)

		ev := handleKeyMouse(mm)
		cmd := handleMenuInput(mm, ev)

		switch {
		case cmd == "", cmd == cmdQuit:
			mm.GetScreen().Fini()
			return
		case cmd == "halt":
			// to prevent accidental halt
			msg = "Are you sure? Please select Command and type: runlevel 0"
			continue
		}

		reply, err := client.Send(cmd)
		if err == nil && isHalt(cmd) {
			mm.GetScreen().Fini()
			fmt.Println("Server is down.")
			return
		}
		msg = "SENT: " + cmd + "\nREPLY: " + reply
		if err != nil {
			msg += "\nERROR: " + err.Error()
		}
		mm.GetScreen().Show()
	}
}

func isHalt(cmd string) bool {
	f := strings.Fields(cmd)
	return len(f) == 2 && (f[0] == "runlevel" || f[0] == "telinit") && f[1] == "0"
}
