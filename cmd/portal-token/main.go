/*
 * Copyright 2024-2026 Terravista
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// portal-token acquires a token for a portal or standalone server and prints
// it, so it can be pasted into scripts or REST calls made by other tools.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/terravista/portal-go/pkg/portal"
)

type commandlineOpts struct {
	URL        string `short:"u" long:"url" description:"Portal or server URL"`
	Username   string `short:"n" long:"username" description:"Username for built-in authentication"`
	Password   string `short:"p" long:"password" description:"Password for built-in authentication"`
	Profile    string `long:"profile" description:"Saved profile to connect with"`
	Server     bool   `long:"server" description:"Target is a standalone server, not a portal"`
	Expiration int    `short:"e" long:"expiration" default:"60" description:"Requested token lifetime in minutes"`
	Debug      bool   `short:"d" long:"debug" description:"Dump HTTP round trips to stderr"`
}

func main() {
	var opts commandlineOpts
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	if opts.Debug {
		portal.SetDebugLogger(log.New(os.Stderr, "", log.LstdFlags))
	}

	builder := portal.New().
		ConnectTo(opts.URL).
		WithTokenExpiration(time.Duration(opts.Expiration) * time.Minute)
	if opts.Profile != "" {
		builder = builder.WithProfile(opts.Profile)
	}
	if opts.Username != "" {
		builder = builder.WithUserPassword(opts.Username, opts.Password)
	}
	if opts.Server {
		builder = builder.AsServer()
	}

	gis, err := builder.Create()
	if err != nil {
		log.Fatal(err)
	}
	token, err := gis.Token()
	if err != nil {
		log.Fatal(err)
	}
	if token == "" {
		log.Fatal("connection scheme carries no token")
	}
	fmt.Println(token)
}
