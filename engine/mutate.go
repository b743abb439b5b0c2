package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gonzalop/ftps"
	"github.com/gonzalop/ftps/listing"
)

var errEmptyName = errors.New("empty name")

func errInvalidDir(dir string) error {
	return fmt.Errorf("directory %q must start and end with /", dir)
}

// command runs fn against the connection and maps its failure.
func (e *Engine) command(ctx context.Context, op string, fn func(*ftps.Client) error) error {
	c, err := e.conn(ctx, op)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		e.settle(c, err)
		return classify(op, err, CodeQuoteCommandFailed)
	}
	e.logger.Debug().Str("op", op).Msg("command succeeded")
	return nil
}

// MakeDirectory sends MKD name.
func (e *Engine) MakeDirectory(ctx context.Context, name string) error {
	if name == "" {
		return newError("mkdir", CodeInvalidArgument, errEmptyName)
	}
	return e.command(ctx, "mkdir", func(c *ftps.Client) error {
		return c.MakeDir(name)
	})
}

// RemoveDirectory sends RMD name.
func (e *Engine) RemoveDirectory(ctx context.Context, name string) error {
	if name == "" {
		return newError("rmdir", CodeInvalidArgument, errEmptyName)
	}
	return e.command(ctx, "rmdir", func(c *ftps.Client) error {
		return c.RemoveDir(name)
	})
}

// DeleteFile sends DELE name.
func (e *Engine) DeleteFile(ctx context.Context, name string) error {
	if name == "" {
		return newError("delete", CodeInvalidArgument, errEmptyName)
	}
	return e.command(ctx, "delete", func(c *ftps.Client) error {
		return c.Delete(name)
	})
}

// RenameFile sends RNFR from followed by RNTO to.
func (e *Engine) RenameFile(ctx context.Context, from, to string) error {
	if from == "" || to == "" {
		return newError("rename", CodeInvalidArgument, errEmptyName)
	}
	return e.command(ctx, "rename", func(c *ftps.Client) error {
		return c.Rename(from, to)
	})
}

// ChangePermissions sends SITE CHMOD with mode as three hex digits, one per
// permission class.
func (e *Engine) ChangePermissions(ctx context.Context, name string, mode listing.Mode) error {
	if name == "" {
		return newError("chmod", CodeInvalidArgument, errEmptyName)
	}
	if mode&^0x777 != 0 {
		return newError("chmod", CodeInvalidArgument, fmt.Errorf("mode %#x out of range", uint16(mode)))
	}
	return e.command(ctx, "chmod", func(c *ftps.Client) error {
		return c.Chmod(name, mode)
	})
}
