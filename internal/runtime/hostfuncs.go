package runtime

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/risor-io/risor/object"
)

// makeFileExistsFn creates the "file_exists" host function.
//
// file_exists(path) → bool, false for directories
func makeFileExistsFn() *object.Builtin {
	return object.NewBuiltin("file_exists", func(ctx context.Context, args ...object.Object) object.Object {
		path, errObj := stringArg("file_exists", args)
		if errObj != nil {
			return errObj
		}
		fi, err := os.Stat(path)
		return object.NewBool(err == nil && !fi.IsDir())
	})
}

// makeDirExistsFn creates the "dir_exists" host function.
//
// dir_exists(path) → bool
func makeDirExistsFn() *object.Builtin {
	return object.NewBuiltin("dir_exists", func(ctx context.Context, args ...object.Object) object.Object {
		path, errObj := stringArg("dir_exists", args)
		if errObj != nil {
			return errObj
		}
		fi, err := os.Stat(path)
		return object.NewBool(err == nil && fi.IsDir())
	})
}

// makePathJoinFn creates the "path_join" host function.
//
// path_join(elem, ...) → string
func makePathJoinFn() *object.Builtin {
	return object.NewBuiltin("path_join", func(ctx context.Context, args ...object.Object) object.Object {
		elems := make([]string, 0, len(args))
		for i, arg := range args {
			s, ok := arg.(*object.String)
			if !ok {
				return object.Errorf("path_join: argument %d must be a string, got %s", i+1, arg.Type())
			}
			elems = append(elems, s.Value())
		}
		return object.NewString(filepath.Join(elems...))
	})
}

// makePathDirFn creates the "path_dir" host function.
//
// path_dir(path) → string
func makePathDirFn() *object.Builtin {
	return object.NewBuiltin("path_dir", func(ctx context.Context, args ...object.Object) object.Object {
		path, errObj := stringArg("path_dir", args)
		if errObj != nil {
			return errObj
		}
		return object.NewString(filepath.Dir(path))
	})
}

// makePathBaseFn creates the "path_base" host function.
//
// path_base(path) → string
func makePathBaseFn() *object.Builtin {
	return object.NewBuiltin("path_base", func(ctx context.Context, args ...object.Object) object.Object {
		path, errObj := stringArg("path_base", args)
		if errObj != nil {
			return errObj
		}
		return object.NewString(filepath.Base(path))
	})
}

func stringArg(fn string, args []object.Object) (string, object.Object) {
	if len(args) != 1 {
		return "", object.NewArgsError(fn, 1, len(args))
	}
	s, ok := args[0].(*object.String)
	if !ok {
		return "", object.Errorf("%s: path must be a string, got %s", fn, args[0].Type())
	}
	return s.Value(), nil
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
