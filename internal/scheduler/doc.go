// Package scheduler периодически обновляет реестр backend'ов.
//
// Расписание задаётся cron-выражением из пяти полей или дескриптором
// (@every 5m, @hourly). Интервал расписания — допустимая устарелость
// статусов доступности в реестре.
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Refresher: registry,
//	    Schedule:  "@every 5m",
//	    Logger:    logger,
//	})
//	if err != nil {
//	    return err
//	}
//
//	sched.Start(ctx) // первое обновление выполняется сразу
//	defer sched.Stop()
package scheduler
