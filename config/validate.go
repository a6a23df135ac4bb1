// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

var dataStorePrefixes = []string{"mysql://", "postgres://", "postgresql://", "sqlite://", "redis://", "rediss://", "json://"}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		return lo.SomeBy(dataStorePrefixes, func(prefix string) bool {
			return strings.HasPrefix(fl.Field().String(), prefix)
		})
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks the configuration and returns a NotValid error describing
// the first offending fields.
func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := lo.Map(validationErrors, func(e validator.FieldError, _ int) string {
				return e.Namespace() + "(" + e.Tag() + ")"
			})
			return errors.NotValidf("config %s", strings.Join(fields, ", "))
		}
		return errors.Trace(err)
	}
	return nil
}
