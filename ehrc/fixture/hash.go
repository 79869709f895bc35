package fixture

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"

	"github.com/carenexus/ehrc-app/conf"
)

var (
	hashIter   int
	hashKeyLen int
	saltSize   int
)

// Hash is a cryptographically hashed string
type Hash string

// Note that changing hashIter or hashKeyLen invalidates stored hashes
// (i.e. registered fixture credentials).
func init() {
	hashIter = envInt("EHRC_FIXTURE_HASH_ITERATIONS", 130000)
	hashKeyLen = envInt("EHRC_FIXTURE_HASH_KEY_LENGTH", 64)
	saltSize = envInt("EHRC_FIXTURE_HASH_SALT_SIZE", 32)
}

func envInt(key string, def int) int {
	v := conf.GetEnv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// NewHash creates a Hash value from a source string
// The hash value consists of the salt and hash separated by a colon ( : )
// If the source of randomness fails it returns an error.
func NewHash(source string) (Hash, error) {
	if source == "" {
		return Hash(""), errors.New("empty string provided to hash function")
	}

	salt := make([]byte, saltSize)
	_, err := rand.Read(salt)
	if err != nil {
		return Hash(""), err
	}

	h := pbkdf2.Key([]byte(source), salt, hashIter, hashKeyLen, sha512.New)

	return Hash(fmt.Sprintf("%s:%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(h))), nil
}

// IsHashOf accepts an unhashed string, which it first hashes and then compares to itself
func (h Hash) IsHashOf(source string) bool {
	// Avoid comparing with an empty source so that a hash of an empty string is never successful
	if source == "" {
		return false
	}

	hashAndPass := strings.Split(h.String(), ":")
	if len(hashAndPass) != 2 {
		return false
	}

	hash := hashAndPass[1]
	salt, err := base64.StdEncoding.DecodeString(hashAndPass[0])
	if err != nil {
		return false
	}

	sourceHash := pbkdf2.Key([]byte(source), salt, hashIter, hashKeyLen, sha512.New)
	return hash == base64.StdEncoding.EncodeToString(sourceHash)
}

func (h Hash) String() string {
	return string(h)
}
