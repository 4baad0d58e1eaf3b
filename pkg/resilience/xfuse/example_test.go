package xfuse_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/fusekit/pkg/resilience/xfuse"
)

// ExampleNewBreaker 演示基本的熔断器创建和使用
func ExampleNewBreaker() {
	// 创建熔断器：窗口内 4 个请求中失败率达到 50% 即熔断
	breaker, err := xfuse.NewBreaker("my-service", xfuse.Policy{
		Timeout:                  2 * time.Second,
		ErrorThresholdPercentage: 50,
		VolumeThreshold:          4,
		ResetTimeout:             time.Second,
	})
	if err != nil {
		fmt.Println("创建失败:", err)
		return
	}
	defer breaker.Close()

	ctx := context.Background()

	// 执行受保护的操作
	err = breaker.Do(ctx, func(ctx context.Context) error {
		// 调用远程服务
		return nil
	})

	if err != nil {
		if xfuse.IsOpen(err) {
			fmt.Println("熔断器已打开，请稍后重试")
		} else {
			fmt.Println("操作失败:", err)
		}
		return
	}

	fmt.Println("操作成功")
	// Output: 操作成功
}

// ExampleExecute 演示泛型执行函数
func ExampleExecute() {
	breaker, _ := xfuse.NewBreaker("user-service", xfuse.Policy{})
	defer breaker.Close()

	ctx := context.Background()

	// 使用泛型函数执行带返回值的操作
	result, err := xfuse.Execute(ctx, breaker, func(ctx context.Context) (string, error) {
		return "hello, world", nil
	})

	if err != nil {
		fmt.Println("错误:", err)
		return
	}

	fmt.Println(result)
	// Output: hello, world
}

// ExampleBreaker_Execute_fallback 演示降级函数
func ExampleBreaker_Execute_fallback() {
	breaker, _ := xfuse.NewBreaker("profile-service", xfuse.Policy{})
	defer breaker.Close()

	ctx := context.Background()

	value, err := breaker.Execute(ctx,
		func(ctx context.Context, args ...any) (any, error) {
			return nil, errors.New("connection refused")
		},
		xfuse.WithArgs("uid-1"),
		xfuse.WithFallback(func(ctx context.Context, cause error, args ...any) (any, error) {
			// 主调用失败，返回降级数据
			return "cached profile", nil
		}),
	)
	if err != nil {
		fmt.Println("错误:", err)
		return
	}

	fmt.Println(value)
	// Output: cached profile
}

// ExampleNew 演示注册表按名称管理熔断器
func ExampleNew() {
	registry, err := xfuse.New(
		xfuse.WithDefaultPolicy(xfuse.Policy{Timeout: 2 * time.Second}),
	)
	if err != nil {
		fmt.Println("创建失败:", err)
		return
	}
	defer registry.Close()

	ctx := context.Background()

	// 同名调用共享同一个熔断器实例
	value, err := registry.Execute(ctx, "user-service",
		func(ctx context.Context, args ...any) (any, error) {
			return fmt.Sprintf("user %v", args[0]), nil
		},
		xfuse.WithArgs("42"),
	)
	if err != nil {
		fmt.Println("错误:", err)
		return
	}

	fmt.Println(value)
	// Output: user 42
}

// ExampleWithLevel 演示按级别隔离同名熔断器
func ExampleWithLevel() {
	registry, _ := xfuse.New()
	defer registry.Close()

	// 不同级别的同名熔断器互相独立
	normal, _ := registry.Resolve("payment")
	critical, _ := registry.Resolve("payment", xfuse.WithLevel("critical"))

	fmt.Println(normal.Name())
	fmt.Println(critical.Name())
	// Output:
	// payment
	// critical::payment
}

// ExampleLoadConfig 演示从 YAML 加载注册表配置
func ExampleLoadConfig() {
	data := []byte(`
default:
  timeout: 2s
breakers:
  payment:
    timeout: 500ms
    capacity: 16
`)

	cfg, err := xfuse.LoadConfig(data, xfuse.FormatYAML)
	if err != nil {
		fmt.Println("加载失败:", err)
		return
	}

	registry, _ := xfuse.New(xfuse.WithConfig(cfg))
	defer registry.Close()

	b, _ := registry.Resolve("payment")
	fmt.Println(b.Policy().Timeout)
	// Output: 500ms
}
