package builtins

import (
	"encoding/hex"

	amoghecrypt "github.com/amoghe/go-crypt"
	sergcrypt "github.com/sergeymakinen/go-crypt"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/ripemd160"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// strCrypt implements the Unix crypt(3)-family password hash as a string
// native (0x02xx tail), dispatching by salt prefix across the two go-crypt
// libraries: glibc-style salts ($1$/$5$/$6$) go
// through sergeymakinen/go-crypt, everything else (including the
// traditional 2-character DES salt) through amoghe/go-crypt.
func strCrypt(ctx *Context, taskID int64, args []value.Value) Result {
	if len(args) < 1 || len(args) > 2 {
		return fault(exception.KindRuntimeError, "crypt takes 1 or 2 arguments")
	}
	pw, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "crypt password must be a string")
	}
	salt := ""
	if len(args) == 2 {
		s, saltIsStr := asString(args[1])
		if !saltIsStr {
			return fault(exception.KindTypeError, "crypt salt must be a string")
		}
		salt = s.String()
	}

	var hashed string
	var err error
	switch {
	case len(salt) >= 3 && (salt[:3] == "$1$" || salt[:3] == "$5$" || salt[:3] == "$6$"):
		hashed, err = sergcrypt.Crypt(pw.String(), salt)
	default:
		hashed, err = amoghecrypt.Crypt(pw.String(), salt)
	}
	if err != nil {
		return fault(exception.KindRuntimeError, "crypt: "+err.Error())
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewString(hashed)))
}

// strRipemd160 hashes with RIPEMD-160 for legacy digest compatibility,
// returning the lowercase hex digest as a string value.
func strRipemd160(ctx *Context, taskID int64, args []value.Value) Result {
	s, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "hash_ripemd160 receiver is not a string")
	}
	h := ripemd160.New()
	h.Write(s.Bytes())
	digest := hex.EncodeToString(h.Sum(nil))
	return okResult(ctx.Heap.Allocate(gcheap.NewString(digest)))
}

// strArgon2 derives an Argon2id key from a password and a caller-supplied
// salt string (args[1]), for scripts that want a modern KDF instead of the
// crypt(3)-family formats strCrypt exposes. Fixed parameters: time=1,
// memory=64MB, 4 threads, 32-byte key.
func strArgon2(ctx *Context, taskID int64, args []value.Value) Result {
	if len(args) != 2 {
		return fault(exception.KindRuntimeError, "hash_argon2 takes 2 arguments")
	}
	pw, pwIsStr := asString(args[0])
	salt, saltIsStr := asString(args[1])
	if !pwIsStr || !saltIsStr {
		return fault(exception.KindTypeError, "hash_argon2 arguments must be strings")
	}
	key := argon2.IDKey(pw.Bytes(), salt.Bytes(), 1, 64*1024, 4, 32)
	return okResult(ctx.Heap.Allocate(gcheap.NewString(hex.EncodeToString(key))))
}
