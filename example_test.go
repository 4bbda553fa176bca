package authcore_test

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/store/memory"
)

// Example walks one account from registration to an authorized request.
func Example() {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("example-signing-secret-0123456789")
	cfg.OTP.Pepper = []byte("example-pepper-0123456789")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1

	mail := make(chan authcore.Message, 1)
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(memory.New()).
		WithNotifier(authcore.NotifierFunc(func(_ context.Context, msg authcore.Message) error {
			mail <- msg
			return nil
		})).
		Build()
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.Register(ctx, "Alice@Example.com", "Correct-Horse-9-Battery"); err != nil {
		panic(err)
	}

	var code string
	select {
	case msg := <-mail:
		code = msg.Code
	case <-time.After(time.Second):
		panic("no verification code")
	}

	pair, err := engine.VerifyRegistration(ctx, "alice@example.com", code, "laptop")
	if err != nil {
		panic(err)
	}

	principal, err := engine.Authorize(ctx, pair.AccessToken, permission.AtLeast(permission.RoleUser))
	if err != nil {
		panic(err)
	}
	fmt.Println(principal.Email, principal.Role)

	_, err = engine.Authorize(ctx, pair.AccessToken, permission.AtLeast(permission.RoleAdmin))
	fmt.Println(authcore.KindOf(err))
	// Output:
	// alice@example.com user
	// forbidden
}
