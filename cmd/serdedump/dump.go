package main

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/application"
	"github.com/lk2023060901/danmu-garden-serde/internal/json"
	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/conc"
)

// fileDump 为一个输入文件的转储结果。帧流中的每一帧对应 Values 中的一项。
type fileDump struct {
	File   string `json:"file"`
	Values []any  `json:"values"`
}

// dump 并发读取全部文件，按输入顺序输出结果。
func dump(app *application.Application, opts *options, out io.Writer) error {
	pool := conc.NewPool[*fileDump](opts.workers, conc.WithConcealPanic(true))
	defer pool.Release()

	futures := lo.Map(opts.files, func(path string, _ int) *conc.Future[*fileDump] {
		return pool.Submit(func() (*fileDump, error) {
			return dumpFile(app, path, opts.framed)
		})
	})
	if err := conc.AwaitAll(futures...); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, f := range futures {
		if err := enc.Encode(f.Value()); err != nil {
			return errors.Wrap(err, "encode dump")
		}
	}
	return nil
}

func dumpFile(app *application.Application, path string, framed bool) (*fileDump, error) {
	ctx, span := log.StartSpan(context.Background(), "serdedump", "dumpFile")
	defer span.End()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	result := &fileDump{File: path}
	if !framed {
		v, err := app.Serializer().Inspect(data)
		if err != nil {
			return nil, errors.Wrapf(err, "inspect %s", path)
		}
		result.Values = append(result.Values, render(v))
		return result, nil
	}

	c, release, err := app.NewCodec()
	if err != nil {
		return nil, err
	}
	defer release()

	r := bytes.NewReader(data)
	for i := 0; ; i++ {
		_, payload, err := c.DecodeRaw(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d of %s", i, path)
		}
		v, err := app.Serializer().Inspect(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "inspect frame %d of %s", i, path)
		}
		result.Values = append(result.Values, render(v))
	}
	log.Ctx(ctx).Debug("file dumped", zap.String("file", path), zap.Int("frames", len(result.Values)))
	return result, nil
}
