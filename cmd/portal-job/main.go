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

// portal-job submits a geoprocessing job, streams its log messages while it
// runs, and prints the named results as JSON when it succeeds.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/terravista/portal-go/pkg/portal"
)

type commandlineOpts struct {
	URL      string   `short:"u" long:"url" description:"Portal or server URL"`
	Task     string   `short:"t" long:"task" required:"true" description:"Geoprocessing task URL or path"`
	Username string   `short:"n" long:"username" description:"Username for built-in authentication"`
	Password string   `short:"p" long:"password" description:"Password for built-in authentication"`
	Profile  string   `long:"profile" description:"Saved profile to connect with"`
	Params   []string `short:"P" long:"param" description:"Job parameter as name=value, repeatable"`
	Interval int      `short:"i" long:"interval" default:"2" description:"Seconds between status polls"`
}

func main() {
	var opts commandlineOpts
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	params := url.Values{}
	for _, pair := range opts.Params {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			log.Fatalf("parameter %q is not of the form name=value", pair)
		}
		params.Set(name, value)
	}

	builder := portal.New().
		ConnectTo(opts.URL).
		PollJobsEvery(time.Duration(opts.Interval) * time.Second)
	if opts.Profile != "" {
		builder = builder.WithProfile(opts.Profile)
	}
	if opts.Username != "" {
		builder = builder.WithUserPassword(opts.Username, opts.Password)
	}
	gis, err := builder.Create()
	if err != nil {
		log.Fatal(err)
	}

	result, err := gis.RunJob(opts.Task, params, func(message portal.JobMessage) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", message.Type, message.Description)
	})
	if err != nil {
		log.Fatal(err)
	}

	output, err := json.MarshalIndent(result.Values, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(output))
}
