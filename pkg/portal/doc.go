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

// Package portal is the public client API for a GIS web platform. It opens
// authenticated connections, issues REST calls through them, downloads
// binary resources and runs long-running geoprocessing jobs to completion.
//
// This example shows how to connect with a username and password and read
// the portal's self resource:
//
//	gis, _ := portal.New().
//	    ConnectTo("https://gis.example.com/portal").
//	    WithUserPassword("publisher", "password").
//	    Create()
//
//	properties, _ := gis.Properties()
//
// A geoprocessing job blocks until the server reports a terminal state,
// streaming its log messages as they appear:
//
//	result, _ := gis.RunJob(taskURL, params, func(m portal.JobMessage) {
//	    fmt.Println(m.Description)
//	})
package portal
