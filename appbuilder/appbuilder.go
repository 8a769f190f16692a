// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package appbuilder provides helpers for common meterflow.AppBuilder
// implementation patterns.
package appbuilder

import (
	"context"

	"github.com/meterflow/meterflow"
	"github.com/meterflow/meterflow/config"
	"github.com/meterflow/meterflow/internal/try"
)

// Recover will wrap the given [meterflow.AppBuilder] with panic recovery.
func Recover[T any](builder meterflow.AppBuilder[T]) meterflow.AppBuilder[T] {
	return meterflow.AppBuilderFunc[T](func(ctx context.Context, cfg T) (_ meterflow.App, err error) {
		defer try.Recover(&err)

		return builder.Build(ctx, cfg)
	})
}

// FromConfig returns a [meterflow.AppBuilder] which unmarshals
// the given [meterflow.AppBuilder]s input type, T, from a [config.Source].
func FromConfig[T any](builder meterflow.AppBuilder[T]) meterflow.AppBuilder[config.Source] {
	return meterflow.AppBuilderFunc[config.Source](func(ctx context.Context, src config.Source) (meterflow.App, error) {
		m, err := config.Read(src)
		if err != nil {
			return nil, err
		}

		var cfg T
		err = m.Unmarshal(&cfg)
		if err != nil {
			return nil, err
		}

		return builder.Build(ctx, cfg)
	})
}
