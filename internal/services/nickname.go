package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"unicode/utf8"

	"github.com/BradenHooton/usermgmt/internal/models"
)

const minNicknameLen = 3

var nicknamePattern = regexp.MustCompile(`^[\w-]+$`)

// NicknameGenerator produces default nicknames for accounts registered
// without one.
type NicknameGenerator interface {
	Generate() string
}

var (
	nicknameAdjectives = []string{
		"clever", "jolly", "brave", "sly", "gentle", "swift", "quiet", "bold",
		"happy", "lucky", "calm", "eager", "fancy", "merry", "witty", "zesty",
	}
	nicknameAnimals = []string{
		"panda", "fox", "raccoon", "koala", "lion", "otter", "badger", "heron",
		"lynx", "tiger", "wolf", "falcon", "beaver", "bison", "gecko", "moose",
	}
)

type randomNicknames struct{}

// NewNicknameGenerator returns a generator producing adjective_animal_NNN.
func NewNicknameGenerator() NicknameGenerator {
	return randomNicknames{}
}

func (randomNicknames) Generate() string {
	return fmt.Sprintf("%s_%s_%03d",
		nicknameAdjectives[randIntn(len(nicknameAdjectives))],
		nicknameAnimals[randIntn(len(nicknameAnimals))],
		randIntn(1000),
	)
}

func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// ValidateNickname enforces the nickname format: word characters and
// hyphens, at least three characters.
func ValidateNickname(nickname string) error {
	if utf8.RuneCountInString(nickname) < minNicknameLen {
		return fmt.Errorf("%w: nickname must be at least %d characters", models.ErrBadRequest, minNicknameLen)
	}
	if !nicknamePattern.MatchString(nickname) {
		return fmt.Errorf("%w: nickname may contain only letters, digits, underscores and hyphens", models.ErrBadRequest)
	}
	return nil
}
