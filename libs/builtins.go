/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package libs

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"time"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
)

// alphabet is used by Gensym.
var alphabet = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

// Gensym makes a random string of the given length.
func Gensym(n int) string {
	bs := make([]byte, n)
	for i := 0; i < len(bs); i++ {
		bs[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(bs)
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func export(x interface{}) interface{} {
	switch vv := x.(type) {
	case goja.Value:
		return vv.Export()
	}
	return x
}

// CronNext parses the given string as a crontab expression using
// github.com/gorhill/cronexpr and returns the next time after the
// given one.
func CronNext(expr string, after time.Time) (time.Time, error) {
	c, err := cronexpr.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return c.Next(after), nil
}

// InstallExtended adds some additional globals:
//
//	randstr(): generate a random string.
//	cronNext(s): Return a string representing (RFC3339Nano) the
//	  next time for the given crontab expression.
//	cronDelay(s): Return the number of milliseconds until that
//	  next time, which is handy for setTimeout.
//	esc(s): URL query-escape the given string.
func InstallExtended(o *goja.Runtime) {
	o.Set("randstr", func() interface{} {
		return Gensym(32)
	})

	cron := func(x interface{}) time.Time {
		s, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		t, err := CronNext(s, time.Now())
		if err != nil {
			protest(o, err.Error())
		}
		return t
	}

	o.Set("cronNext", func(x interface{}) interface{} {
		return cron(x).UTC().Format(time.RFC3339Nano)
	})

	o.Set("cronDelay", func(x interface{}) interface{} {
		return int64(time.Until(cron(x)) / time.Millisecond)
	})

	o.Set("esc", func(x interface{}) interface{} {
		s, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		return url.QueryEscape(s)
	})
}

// InstallTesting exposes some capabilities that are only useful for
// tests:
//
//	sleep(ms): sleep for the given number of milliseconds.  Blocks
//	  the whole loop.
//	log(x): log the JSON representation of x.
func InstallTesting(o *goja.Runtime) {
	o.Set("sleep", func(n interface{}) interface{} {
		n = export(n)
		ms, is := n.(int64)
		if !is {
			protest(o, fmt.Sprintf("a %T is not an %T", n, ms))
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return nil
	})

	o.Set("log", func(x interface{}) interface{} {
		x = export(x)
		js, err := json.Marshal(&x)
		if err != nil {
			log.Println("log (can't marshal: " + err.Error() + ")")
		} else {
			log.Println(string(js))
		}
		return x
	})
}
